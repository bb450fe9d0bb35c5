package state

// DisplayKind is what a UI shows for a package.
type DisplayKind int

const (
	DisplayNotInstalled DisplayKind = iota
	DisplaySharedLibrary
	DisplayDisabled
	DisplayUpdateAvailable
	DisplayInstalled
	DisplayPendingDownload
	DisplayDownloading
	DisplayUnpacking
	DisplayPendingInstall
	DisplayAwaitingConfirmation
	DisplayInstalling
	DisplayCancelling
)

var displayNames = map[DisplayKind]string{
	DisplayNotInstalled:         "not installed",
	DisplaySharedLibrary:        "shared library",
	DisplayDisabled:             "disabled",
	DisplayUpdateAvailable:      "update available",
	DisplayInstalled:            "installed",
	DisplayPendingDownload:      "pending download",
	DisplayDownloading:          "downloading",
	DisplayUnpacking:            "unpacking",
	DisplayPendingInstall:       "pending install",
	DisplayAwaitingConfirmation: "waiting for confirmation",
	DisplayInstalling:           "installing",
	DisplayCancelling:           "cancelling",
}

func (k DisplayKind) String() string { return displayNames[k] }

// Display is a presentation snapshot of a package state.
type Display struct {
	Kind DisplayKind
	// Done and Total are set while downloading.
	Done, Total int64
	IsUpdate    bool
	// DownloadSize is set for not-installed, shared-library and
	// update-available packages.
	DownloadSize int64
	// Dots animates waiting states; it cycles through 0..3.
	Dots int
}

// Display describes the state for presentation.
func (ps *PackageState) Display() Display {
	dots := ps.store.updateLoopRuns & 0b11
	if t := ps.Task; t != nil {
		if t.IsCancelled() {
			return Display{Kind: DisplayCancelling, Dots: dots}
		}
		switch t.Phase() {
		case PhasePendingDownload:
			return Display{Kind: DisplayPendingDownload, Dots: dots}
		case PhasePendingInstall:
			return Display{Kind: DisplayPendingInstall, Dots: dots}
		default:
			done, total := t.Progress()
			if done == total {
				return Display{Kind: DisplayUnpacking, Done: done, Total: total, Dots: dots}
			}
			return Display{Kind: DisplayDownloading, Done: done, Total: total, IsUpdate: t.IsUpdate()}
		}
	}

	if ps.HasInstallerSession() {
		if ps.WaitingForUserAction {
			return Display{Kind: DisplayAwaitingConfirmation, Dots: dots}
		}
		return Display{Kind: DisplayInstalling, Dots: dots}
	}

	switch ps.Status() {
	case StatusSharedLibrary:
		return Display{Kind: DisplaySharedLibrary, DownloadSize: ps.DownloadSize()}
	case StatusNotInstalled:
		return Display{Kind: DisplayNotInstalled, DownloadSize: ps.DownloadSize()}
	case StatusDisabled:
		return Display{Kind: DisplayDisabled}
	case StatusOutOfDate:
		return Display{Kind: DisplayUpdateAvailable, DownloadSize: ps.DownloadSize()}
	default:
		return Display{Kind: DisplayInstalled}
	}
}

// Percent is the download progress in whole percent.
func (d Display) Percent() int {
	if d.Total <= 0 {
		return 0
	}
	return int(float64(d.Done) / float64(d.Total) * 100)
}
