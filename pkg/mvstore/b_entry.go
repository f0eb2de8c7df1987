package mvstore

import (
	"bytes"
	"fmt"
	"io"

	"xacto/pkg/data"
	"xacto/pkg/txn"
)

// entry is one key and its version chain, oldest first.
type entry struct {
	key   *data.Key
	first *data.Version
	last  *data.Version
	n     int
}

func entryLess(a, b *entry) bool {
	return bytes.Compare(a.key.Bytes(), b.key.Bytes()) < 0
}

func (e *entry) append(v *data.Version) {
	v.Prev = e.last
	if e.last != nil {
		e.last.Next = v
	} else {
		e.first = v
	}
	e.last = v
	e.n++
}

func (e *entry) remove(v *data.Version) {
	if e.first == v {
		e.first = v.Next
	}
	if e.last == v {
		e.last = v.Prev
	}
	e.n--
	v.Dispose()
}

func (e *entry) dispose() {
	for e.first != nil {
		e.remove(e.first)
	}
	e.key.Dispose()
	e.key = nil
}

// gc drops the aborted suffix of the chain, aborting every creator in it,
// then drops every version older than the newest committed one.
func (e *entry) gc() error {
	var cut *data.Version
	for v := e.first; v != nil; v = v.Next {
		if v.Creator.Status() == txn.Aborted {
			cut = v
			break
		}
	}
	for cut != nil {
		v := e.last
		if v == cut {
			cut = nil
		}
		creator := v.Creator.Retain("store gc")
		e.remove(v)
		gcCounter.WithLabelValues("aborted").Inc()
		if _, err := creator.Abort(); err != nil {
			return err
		}
	}

	var newest *data.Version
	for v := e.last; v != nil; v = v.Prev {
		if v.Creator.Status() == txn.Committed {
			newest = v
			break
		}
	}
	if newest == nil {
		return nil
	}
	for e.first != newest {
		e.remove(e.first)
		gcCounter.WithLabelValues("committed").Inc()
	}
	return nil
}

func (e *entry) show(w io.Writer) {
	fmt.Fprintf(w, "key = %s, versions = %d:", e.key, e.n)
	for v := e.first; v != nil; v = v.Next {
		fmt.Fprintf(w, " [txn %d %s %s]", v.Creator.ID(), v.Creator.Status(), v.Blob)
	}
	fmt.Fprintln(w)
}
