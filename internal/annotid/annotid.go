// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package annotid implements the composite AnnotId integer encoding
// used to identify one annotation: an articleId, a fileId local to that
// article, and a local annotation index within that file, packed into a
// single decimal integer as
//
//	annotId = articleId * 10^(fileDigits+annotDigits) + fileId * 10^annotDigits + localAnnot
//
// The digit widths are process-wide constants (internal/config); the
// encoding is load-bearing, so Split/Compose must be exact inverses of
// one another for every valid input (spec.md §8 property 3).
package annotid

import "fmt"

// Digits holds the digit widths used to pack and unpack an AnnotId.
// F = FileDigits, A = AnnotDigits in spec.md's notation.
type Digits struct {
	Article int
	File    int
	Annot   int
}

// Split decomposes n into (articleId, fileId, localAnnot) using the
// digit widths in d.
func (d Digits) Split(n uint64) (articleID, fileID, local uint64) {
	annotMod := pow10(d.Annot)
	fileMod := pow10(d.File)

	local = n % annotMod
	rest := n / annotMod
	fileID = rest % fileMod
	articleID = rest / fileMod
	return articleID, fileID, local
}

// Compose is the inverse of Split: it packs (articleId, fileId,
// localAnnot) back into a single AnnotId. Compose panics if fileID or
// local exceed the digit widths in d, since that would silently
// corrupt the articleId component (the invariant stated in spec.md
// §3: "localAnnot < 10^A, fileId < 10^F").
func (d Digits) Compose(articleID, fileID, local uint64) uint64 {
	annotMod := pow10(d.Annot)
	fileMod := pow10(d.File)
	if fileID >= fileMod {
		panic(fmt.Sprintf("annotid: fileId %d does not fit in %d digits", fileID, d.File))
	}
	if local >= annotMod {
		panic(fmt.Sprintf("annotid: local annotation %d does not fit in %d digits", local, d.Annot))
	}
	return articleID*fileMod*annotMod + fileID*annotMod + local
}

// ArticleID returns only the articleId component of n.
func (d Digits) ArticleID(n uint64) uint64 {
	a, _, _ := d.Split(n)
	return a
}

func pow10(n int) uint64 {
	r := uint64(1)
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}
