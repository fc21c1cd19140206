package board

// Version is the universal dialect version written by this module.
const Version = "1.1.2"
