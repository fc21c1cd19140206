// Package convert translates board documents between the legacy EyePoint
// P10 dialect and the universal (UFIV) dialect.
//
// Legacy to universal is the main direction. It is deliberately lossy:
// recognition probability, cluster ids and comparison scores have no
// universal representation and are dropped. The converted document is
// validated against the universal schema before any bytes are returned,
// so callers never see partial output.
//
// ToLegacy implements the inverse for the fields both dialects share.
package convert
