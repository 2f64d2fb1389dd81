package migration

import "io/fs"

func fsReadFile(name string) ([]byte, error) {
	return fs.ReadFile(Files(), name)
}
