package services

import (
	"fmt"
	"strings"
)

// ViewKind tags the variant of a ViewDescriptor
type ViewKind int

const (
	ViewFolder ViewKind = iota
	ViewFilter
	ViewAll
	ViewSnoozed
	ViewSearch
)

func (k ViewKind) String() string {
	switch k {
	case ViewFolder:
		return "folder"
	case ViewFilter:
		return "filter"
	case ViewAll:
		return "all"
	case ViewSnoozed:
		return "snoozed"
	case ViewSearch:
		return "search"
	default:
		return "unknown"
	}
}

// FilterPredicate restricts a filtered view by flags; nil fields match anything
type FilterPredicate struct {
	IsRead    *bool
	IsStarred *bool
}

// ViewDescriptor names what the message list shows.
// Only the fields of the active Kind are meaningful.
type ViewDescriptor struct {
	Kind      ViewKind
	FolderID  int64
	Filter    FilterPredicate
	InboxOnly bool
	Query     string
}

// FolderView shows a single folder
func FolderView(folderID int64) ViewDescriptor {
	return ViewDescriptor{Kind: ViewFolder, FolderID: folderID}
}

// FilterView shows messages matching pred across folders, or only the inbox
func FilterView(pred FilterPredicate, inboxOnly bool) ViewDescriptor {
	return ViewDescriptor{Kind: ViewFilter, Filter: pred, InboxOnly: inboxOnly}
}

// UnreadView is the saved "unread" filter
func UnreadView() ViewDescriptor {
	f := false
	return FilterView(FilterPredicate{IsRead: &f}, false)
}

// StarredView is the saved "starred" filter
func StarredView() ViewDescriptor {
	t := true
	return FilterView(FilterPredicate{IsStarred: &t}, false)
}

// AllView shows every message
func AllView() ViewDescriptor {
	return ViewDescriptor{Kind: ViewAll}
}

// SnoozedView shows snoozed messages
func SnoozedView() ViewDescriptor {
	return ViewDescriptor{Kind: ViewSnoozed}
}

// SearchView shows the results of a query
func SearchView(query string) ViewDescriptor {
	return ViewDescriptor{Kind: ViewSearch, Query: strings.TrimSpace(query)}
}

// Key is a stable identity of the descriptor, used for comparison and snapshots
func (d ViewDescriptor) Key() string {
	switch d.Kind {
	case ViewFolder:
		return fmt.Sprintf("folder:%d", d.FolderID)
	case ViewFilter:
		key := "filter:read=" + flagKey(d.Filter.IsRead) + ",starred=" + flagKey(d.Filter.IsStarred)
		if d.InboxOnly {
			key += ",inbox"
		}
		return key
	case ViewSearch:
		return "search:" + d.Query
	default:
		return d.Kind.String()
	}
}

// Equal reports whether both descriptors name the same view
func (d ViewDescriptor) Equal(o ViewDescriptor) bool {
	return d.Key() == o.Key()
}

// LiveUpdates reports whether new mail can change the view, so push
// notifications reload it
func (d ViewDescriptor) LiveUpdates() bool {
	switch d.Kind {
	case ViewFolder, ViewFilter, ViewAll:
		return true
	default:
		return false
	}
}

func (d ViewDescriptor) String() string {
	return d.Key()
}

func flagKey(b *bool) string {
	if b == nil {
		return "any"
	}
	if *b {
		return "yes"
	}
	return "no"
}
