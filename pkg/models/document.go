package models

import "strings"

// DefaultOwner is the display label for the single user of the system.
const DefaultOwner = "You"

// Document is the full metadata document: the authoritative record of
// the virtual filesystem tree. Both collections keep insertion order,
// newest records first.
type Document struct {
	Folders []Folder `json:"folders"`
	Files   []File   `json:"files"`
}

// FindFolder returns the folder with the given id, or nil.
func (d *Document) FindFolder(id string) *Folder {
	for i := range d.Folders {
		if d.Folders[i].ID == id {
			return &d.Folders[i]
		}
	}
	return nil
}

// FindFolderByName returns the folder whose name matches
// case-insensitively, or nil.
func (d *Document) FindFolderByName(name string) *Folder {
	for i := range d.Folders {
		if strings.EqualFold(d.Folders[i].Name, name) {
			return &d.Folders[i]
		}
	}
	return nil
}

// FindFile returns the file with the given id, or nil.
func (d *Document) FindFile(id string) *File {
	for i := range d.Files {
		if d.Files[i].ID == id {
			return &d.Files[i]
		}
	}
	return nil
}

// PrependFolder inserts the folder at the head of the collection.
func (d *Document) PrependFolder(folder Folder) {
	d.Folders = append([]Folder{folder}, d.Folders...)
}

// PrependFile inserts the file at the head of the collection.
func (d *Document) PrependFile(file File) {
	d.Files = append([]File{file}, d.Files...)
}

// RemoveFile removes the file with the given id and returns the removed
// record, or nil if no record matched.
func (d *Document) RemoveFile(id string) *File {
	for i := range d.Files {
		if d.Files[i].ID == id {
			removed := d.Files[i]
			d.Files = append(d.Files[:i], d.Files[i+1:]...)
			return &removed
		}
	}
	return nil
}

// RemoveFolder removes the folder with the given id together with all
// of its child files. It returns the removed folder and the removed
// children, or nil if no folder matched.
func (d *Document) RemoveFolder(id string) (*Folder, []File) {
	idx := -1
	for i := range d.Folders {
		if d.Folders[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, nil
	}

	removed := d.Folders[idx]
	d.Folders = append(d.Folders[:idx], d.Folders[idx+1:]...)

	var children []File
	kept := d.Files[:0]
	for _, file := range d.Files {
		if file.Parent == id {
			children = append(children, file)
		} else {
			kept = append(kept, file)
		}
	}
	d.Files = kept

	return &removed, children
}
