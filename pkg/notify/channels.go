package notify

// Channel names one slot of UI state.
type Channel string

const (
	// ChannelEnvSummariesChanged is poked after the environment list was refreshed.
	ChannelEnvSummariesChanged Channel = "env-sum-change"
	// ChannelEnvSort holds the SortOrder of the environment list.
	ChannelEnvSort Channel = "env-sort"
	// ChannelEnvView holds the View used to render the environment list.
	ChannelEnvView Channel = "env-view"
)

// SortOrder orders the environment list.
type SortOrder string

const (
	SortByName   SortOrder = "name"
	SortByStatus SortOrder = "status"
	SortByLabel  SortOrder = "label"
)

// View selects how the environment list is rendered.
type View string

const (
	ViewListColumns View = "list-columns"
	ViewList        View = "list"
	ViewGrid        View = "grid"
)

// ParseSortOrder validates a sort order name.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch o := SortOrder(s); o {
	case SortByName, SortByStatus, SortByLabel:
		return o, true
	}
	return "", false
}

// ParseView validates a view name.
func ParseView(s string) (View, bool) {
	switch v := View(s); v {
	case ViewListColumns, ViewList, ViewGrid:
		return v, true
	}
	return "", false
}

// Schema binds every declared channel to its initial value.
type Schema map[Channel]interface{}

// DefaultSchema returns the channels used by the environment list UI.
func DefaultSchema() Schema {
	return Schema{
		ChannelEnvSummariesChanged: true,
		ChannelEnvSort:             SortByName,
		ChannelEnvView:             ViewListColumns,
	}
}
