// Package extract turns loosely structured result tables into typed Records.
//
// Rows are scanned in order with two pieces of state, the current class and
// the current column schema. Each row is a class header, a column header, a
// junk row or a data row, tested in that order. Source differences live in a
// Profile rather than in code.
package extract
