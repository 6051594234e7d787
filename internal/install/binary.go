package install

import (
	"fmt"
	"os"
)

func installBinary(destination string) (err error) {
	selfPath, err := os.Executable()
	if err != nil {
		return
	}
	if selfPath == destination {
		return
	}

	err = os.Rename(selfPath, destination)
	if err != nil {
		err = fmt.Errorf("failed to move: %w", err)
		return
	}

	fmt.Printf("Successfully installed binary to '%s'\n", destination)
	return
}

func removeFile(path, what string) (err error) {
	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return
	}
	err = nil

	fmt.Printf("Successfully removed %s '%s'\n", what, path)
	return
}

func removeDir(path, what string) (err error) {
	err = os.RemoveAll(path)
	if err != nil {
		return
	}

	fmt.Printf("Successfully removed %s '%s'\n", what, path)
	return
}
