package vfs

import "fmt"

// Limits carries the quota ceilings named in spec.md §4.2's FsLimits.
type Limits struct {
	MaxTotalBytes     int64 `yaml:"max_total_bytes" json:"max_total_bytes"`
	MaxFileSize       int64 `yaml:"max_file_size" json:"max_file_size"`
	MaxFileCount      int   `yaml:"max_file_count" json:"max_file_count"`
	MaxPathDepth      int   `yaml:"max_path_depth" json:"max_path_depth"`
	MaxFilenameLength int   `yaml:"max_filename_length" json:"max_filename_length"`
	MaxPathLength     int   `yaml:"max_path_length" json:"max_path_length"`
}

// DefaultLimits returns the ceilings named in spec.md §4.2.
func DefaultLimits() Limits {
	return Limits{
		MaxTotalBytes:     100 * 1024 * 1024,
		MaxFileSize:       10 * 1024 * 1024,
		MaxFileCount:      10_000,
		MaxPathDepth:      100,
		MaxFilenameLength: 255,
		MaxPathLength:     4096,
	}
}

// Validate rejects non-positive ceilings.
func (l Limits) Validate() error {
	if l.MaxTotalBytes <= 0 {
		return fmt.Errorf("vfs: max_total_bytes must be positive, got %d", l.MaxTotalBytes)
	}
	if l.MaxFileSize <= 0 {
		return fmt.Errorf("vfs: max_file_size must be positive, got %d", l.MaxFileSize)
	}
	if l.MaxFileSize > l.MaxTotalBytes {
		return fmt.Errorf("vfs: max_file_size (%d) must be <= max_total_bytes (%d)", l.MaxFileSize, l.MaxTotalBytes)
	}
	if l.MaxFileCount <= 0 {
		return fmt.Errorf("vfs: max_file_count must be positive, got %d", l.MaxFileCount)
	}
	if l.MaxPathDepth <= 0 {
		return fmt.Errorf("vfs: max_path_depth must be positive, got %d", l.MaxPathDepth)
	}
	if l.MaxFilenameLength <= 0 {
		return fmt.Errorf("vfs: max_filename_length must be positive, got %d", l.MaxFilenameLength)
	}
	if l.MaxPathLength <= 0 {
		return fmt.Errorf("vfs: max_path_length must be positive, got %d", l.MaxPathLength)
	}
	return nil
}

// checkWrite consults live usage before a write that could grow it, per
// spec.md §4.2: "Before any write that could grow usage ... the
// implementation consults a live FsUsage and rejects ... if the new total
// would exceed a limit." newFileBytes is the size of the chunk being
// written (the whole file for write_file, the appended chunk for
// append_file); isNewFile indicates whether this write creates a file that
// doesn't already count toward FileCount.
func (l Limits) checkWrite(u Usage, newFileBytes int64, isNewFile bool) error {
	if newFileBytes > l.MaxFileSize {
		return &LimitExceeded{Kind: LimitFileSize, Limit: l.MaxFileSize}
	}
	if u.TotalBytes+newFileBytes > l.MaxTotalBytes {
		return &LimitExceeded{Kind: LimitTotalBytes, Limit: l.MaxTotalBytes}
	}
	if isNewFile && u.FileCount+1 > int64(l.MaxFileCount) {
		return &LimitExceeded{Kind: LimitFileCount, Limit: int64(l.MaxFileCount)}
	}
	return nil
}
