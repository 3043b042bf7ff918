/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// AppendDefaultPort appends defPort to bstr unless bstr already carries a
// port. Grounded on ingest/config/parse.go's function of the same name and
// signature idea.
func AppendDefaultPort(bstr string, defPort int) string {
	if bstr == "" {
		return fmt.Sprintf(":%d", defPort)
	}
	if idx := strings.LastIndexByte(bstr, ':'); idx >= 0 {
		if _, err := strconv.Atoi(bstr[idx+1:]); err == nil {
			return bstr
		}
	}
	return fmt.Sprintf("%s:%d", bstr, defPort)
}
