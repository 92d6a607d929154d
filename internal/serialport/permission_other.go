//go:build !unix

package serialport

import "os"

func accessRW(path string) error {
	_, err := os.Stat(path)
	return err
}
