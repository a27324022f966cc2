package caldav

// Calendar is one calendar found in the user's home set.
type Calendar struct {
	Path        string
	DisplayName string
	Description string
}
