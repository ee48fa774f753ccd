package sender

import "github.com/oferchen/rsync-sub020/internal/rsyncwire"

// FilterRule is one include/exclude pattern from the client's filter
// list (spec §1 non-goals exclude the full filter-rule language;
// daemon/server mode still needs to read and discard/record whatever
// the client sends so the wire stays in sync).
type FilterRule struct {
	Pattern string
}

// FilterList is the decoded filter-rule list a client may send ahead of
// the file list when --delete is active.
type FilterList struct {
	Filters []FilterRule
}

// RecvFilterList reads the filter-rule list: a sequence of
// varint-length-prefixed rule strings terminated by a zero-length
// entry, matching the exclusion-list framing upstream rsync uses ahead
// of file-list transmission under --delete.
func RecvFilterList(c *rsyncwire.Conn) (*FilterList, error) {
	fl := &FilterList{}
	for {
		n, err := rsyncwire.ReadVarint(c.Reader)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return fl, nil
		}
		buf, err := c.ReadN(int(n))
		if err != nil {
			return nil, err
		}
		fl.Filters = append(fl.Filters, FilterRule{Pattern: string(buf)})
	}
}
