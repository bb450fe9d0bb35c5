package cli

// Default values for CLI output.
const (
	// MaxLabelLength is the maximum length of a package label in tables.
	MaxLabelLength = 30
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
)
