// Package store persists image metadata as one JSON file per image folder.
// The file lives next to the images it describes, so metadata travels with
// the folder when it is moved or backed up.
package store
