/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/gravwell/gcfg"
)

const maxConfigSize int64 = 1 * 1024 * 1024

// ErrConfigFileTooLarge guards against a malformed or hostile config file.
var ErrConfigFileTooLarge = errors.New("config: file is too large")

// LoadConfigFile opens path, size-caps it, and parses it with gcfg into a
// fresh Config. Grounded on ingest/config/loader.go's LoadConfigFile.
func LoadConfigFile(path string) (Config, error) {
	fin, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer fin.Close()

	fi, err := fin.Stat()
	if err != nil {
		return Config{}, err
	}
	if fi.Size() > maxConfigSize {
		return Config{}, ErrConfigFileTooLarge
	}

	bb := bytes.NewBuffer(nil)
	if _, err := io.Copy(bb, fin); err != nil {
		return Config{}, err
	}
	return LoadConfigBytes(bb.Bytes())
}

// LoadConfigBytes parses b with gcfg into a fresh Config.
func LoadConfigBytes(b []byte) (Config, error) {
	if int64(len(b)) > maxConfigSize {
		return Config{}, ErrConfigFileTooLarge
	}
	var c Config
	if err := gcfg.ReadStringInto(&c, string(b)); err != nil {
		return Config{}, err
	}
	return c, nil
}
