package blob

import "os"

func createTempIn(dir string) (*os.File, error) {
	return os.CreateTemp(dir, ".upload-*")
}
