// Copyright 2026 repostats contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
)

const (
	majorVer = 0
	minorVer = 1
	patchVer = 0
	devVer   = 0
)

// GetVersionString returns a semantic version string for the --version flag.
func GetVersionString() string {
	if devVer > 0 {
		return fmt.Sprintf("v%d.%d.%d.%d-dev", majorVer, minorVer, patchVer, devVer)
	}
	return fmt.Sprintf("v%d.%d.%d", majorVer, minorVer, patchVer)
}

// GetVersionNumber returns a semantic-ordered version number, e.g. for
// plugin API compatibility checks against BaseAPIVersion-adjacent tooling.
func GetVersionNumber() int64 {
	if devVer > 0 {
		return majorVer*1000000 + minorVer*10000 + patchVer*100 + devVer
	}
	return majorVer*10000 + minorVer*100 + patchVer
}
