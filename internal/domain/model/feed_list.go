package model

// FeedList is an ordered, append-only sequence of FeedItems, unique by SourceURL.
// It is not safe for concurrent use; the owner confines it to one goroutine or lock.
type FeedList struct {
	items []*FeedItem
	index map[string]int
}

func NewFeedList() *FeedList {
	return &FeedList{index: make(map[string]int)}
}

func (l *FeedList) Len() int {
	return len(l.items)
}

// At returns the item at i, or nil when i is out of range.
func (l *FeedList) At(i int) *FeedItem {
	if i < 0 || i >= len(l.items) {
		return nil
	}
	return l.items[i]
}

// Last returns the final item, or nil when the list is empty.
func (l *FeedList) Last() *FeedItem {
	return l.At(len(l.items) - 1)
}

// IndexOf returns the position of sourceURL, or -1.
func (l *FeedList) IndexOf(sourceURL string) int {
	if i, ok := l.index[sourceURL]; ok {
		return i
	}
	return -1
}

func (l *FeedList) Contains(sourceURL string) bool {
	_, ok := l.index[sourceURL]
	return ok
}

// Append adds videos in order, skipping any whose SourceURL is already present
// (including duplicates within videos itself). Returns the number appended.
func (l *FeedList) Append(videos ...Video) int {
	added := 0
	for _, v := range videos {
		if v.SourceURL == "" || l.Contains(v.SourceURL) {
			continue
		}
		l.index[v.SourceURL] = len(l.items)
		l.items = append(l.items, NewFeedItem(v))
		added++
	}
	return added
}

// ItemView is a read-only copy of an item's state.
type ItemView struct {
	Index     int
	SourceURL string
	Slot      SlotState
	HasHandle bool
}

// Snapshot returns a consistent copy of every item's state.
func (l *FeedList) Snapshot() []ItemView {
	views := make([]ItemView, len(l.items))
	for i, item := range l.items {
		views[i] = ItemView{
			Index:     i,
			SourceURL: item.SourceURL(),
			Slot:      item.Slot(),
			HasHandle: item.HasHandle(),
		}
	}
	return views
}

// HandleIndices returns the indices of items holding a handle, ascending.
func (l *FeedList) HandleIndices() []int {
	var out []int
	for i, item := range l.items {
		if item.HasHandle() {
			out = append(out, i)
		}
	}
	return out
}
