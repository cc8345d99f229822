// Copyright (C) 2025 Feesim Authors.
// See LICENSE for copying information.

package accounting

import "sort"

// FileInfo describes a stored file.
type FileInfo struct {
	Name   string
	SizeKB int64
	UnitID string
}

// Inventory tracks the files currently stored and their locations.
type Inventory struct {
	files map[string]FileInfo
}

// NewInventory returns an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{files: make(map[string]FileInfo)}
}

// Lookup returns the file stored under name.
func (inventory *Inventory) Lookup(name string) (FileInfo, bool) {
	info, ok := inventory.files[name]
	return info, ok
}

// Put stores or replaces the file record.
func (inventory *Inventory) Put(info FileInfo) {
	inventory.files[info.Name] = info
}

// Remove deletes the file record, if present.
func (inventory *Inventory) Remove(name string) {
	delete(inventory.files, name)
}

// Count returns the number of stored files.
func (inventory *Inventory) Count() int {
	return len(inventory.files)
}

// StoredIn returns the files stored in the given unit, ordered by name.
func (inventory *Inventory) StoredIn(unitID string) []FileInfo {
	var infos []FileInfo
	for _, info := range inventory.files {
		if info.UnitID == unitID {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
