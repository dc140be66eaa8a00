// Package lbm decodes bitmap index segments.
//
// A bitmap index entry is a sequence of tuples. Each tuple carries a start
// row id, an optional segment descriptor and optional segment data. Segment
// data is stored byte reversed: the first logical bitmap byte is the last
// stored byte. The descriptor lists (run length, zero gap) pairs splitting the
// data into segments separated by implicit zero bytes. Tuples without segment
// data are singletons covering exactly their start row id.
//
// [SegmentReader] pulls tuples from a [TupleReader], walks their segments and
// optionally mirrors every decoded bit into a caller owned [bitvec.Vector].
// Readers are driven by cooperative executors, they never block and report
// back pressure through [stream.Result] values.
package lbm
