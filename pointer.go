// SPDX-License-Identifier: Apache-2.0

package merge3

import (
	"strconv"
	"strings"
)

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// joinPointer appends an escaped object key to a JSON Pointer.
func joinPointer(parent, key string) string {
	return parent + "/" + pointerEscaper.Replace(key)
}

// indexPointer appends a list index to a JSON Pointer.
func indexPointer(parent string, i int) string {
	return parent + "/" + strconv.Itoa(i)
}

// comparePointers orders JSON Pointers segment by segment, comparing
// numeric segments as numbers so that /a/2 sorts before /a/10.
func comparePointers(a, b string) int {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if ai < bi {
				return -1
			}
			return 1
		}
		return strings.Compare(as[i], bs[i])
	}
	return len(as) - len(bs)
}
