package utils

import "os"

// CreateFolder creates all given directories, including parents.
func CreateFolder(folderPath ...string) error {
	for _, folder := range folderPath {
		if err := os.MkdirAll(folder, os.ModePerm); err != nil {
			return err
		}
	}
	return nil
}
