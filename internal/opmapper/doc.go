// Package opmapper translates operators of an external model description
// into IR instructions.
//
// A Registry maps external operator type names to Mapper functions. Each
// mapper reads the operator's slots and attributes, resolves input names
// through the Context, drives the NetBuilder and registers its outputs
// back into the Context. Translation of one operator is transactional: a
// failing mapper leaves neither instructions nor name bindings behind.
package opmapper
