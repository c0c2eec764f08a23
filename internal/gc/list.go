package gc

const noSlot int32 = -1

type links struct {
	next, prev int32
}

// indexList is an intrusive doubly linked list threaded through slots by
// index. link selects which pair of links in a slot the list owns.
type indexList struct {
	head, tail int32
	n          int
	link       func(s *slot) *links
}

func newIndexList(link func(s *slot) *links) indexList {
	return indexList{head: noSlot, tail: noSlot, link: link}
}

func objectLinks(s *slot) *links { return &s.list }
func grayLinks(s *slot) *links   { return &s.gray }

func (l *indexList) pushFront(a *arena, i int32) {
	lk := l.link(a.at(i))
	lk.prev = noSlot
	lk.next = l.head
	if l.head != noSlot {
		l.link(a.at(l.head)).prev = i
	} else {
		l.tail = i
	}
	l.head = i
	l.n++
}

func (l *indexList) pushBack(a *arena, i int32) {
	lk := l.link(a.at(i))
	lk.next = noSlot
	lk.prev = l.tail
	if l.tail != noSlot {
		l.link(a.at(l.tail)).next = i
	} else {
		l.head = i
	}
	l.tail = i
	l.n++
}

func (l *indexList) remove(a *arena, i int32) {
	lk := l.link(a.at(i))
	if lk.prev != noSlot {
		l.link(a.at(lk.prev)).next = lk.next
	} else {
		l.head = lk.next
	}
	if lk.next != noSlot {
		l.link(a.at(lk.next)).prev = lk.prev
	} else {
		l.tail = lk.prev
	}
	lk.next, lk.prev = noSlot, noSlot
	l.n--
}

func (l *indexList) popFront(a *arena) int32 {
	i := l.head
	if i != noSlot {
		l.remove(a, i)
	}
	return i
}

func (l *indexList) next(a *arena, i int32) int32 {
	return l.link(a.at(i)).next
}

func (l *indexList) reset() {
	l.head, l.tail, l.n = noSlot, noSlot, 0
}
