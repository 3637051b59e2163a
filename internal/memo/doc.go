// Package memo stores the memo records the enrichment pipeline hangs its
// state off. The core treats memos as externally owned: it creates rows when
// the recorder hands over a finished file and writes back generated titles,
// nothing more.
package memo
