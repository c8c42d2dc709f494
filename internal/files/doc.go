// Package files stores uploaded trade-history workbooks on local disk.
//
// Store keeps every workbook in one data directory under a generated name
// (<unixms>_<id>.xlsx) and records the name it was uploaded with in a JSON
// manifest beside the files. Names passed to Read and Delete must be bare
// workbook file names; anything that could leave the directory is rejected
// with ErrInvalidName.
//
// FindWorkbooks and ExpandPaths locate workbooks on disk for the command
// line tools.
package files
