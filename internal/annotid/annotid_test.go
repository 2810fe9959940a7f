// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package annotid

import "testing"

func TestRoundTrip(t *testing.T) {
	d := Digits{Article: 10, File: 3, Annot: 5}
	cases := []struct {
		article, file, local uint64
	}{
		{4400020395, 0, 12},
		{1, 1, 1},
		{0, 0, 0},
		{9999999999, 999, 99999},
	}
	for _, c := range cases {
		n := d.Compose(c.article, c.file, c.local)
		gotArticle, gotFile, gotLocal := d.Split(n)
		if gotArticle != c.article || gotFile != c.file || gotLocal != c.local {
			t.Errorf("Split(Compose(%d,%d,%d)) = (%d,%d,%d), want (%d,%d,%d)",
				c.article, c.file, c.local, gotArticle, gotFile, gotLocal, c.article, c.file, c.local)
		}
		if got := d.ArticleID(n); got != c.article {
			t.Errorf("ArticleID(%d) = %d, want %d", n, got, c.article)
		}
	}
}

func TestComposeKnownValue(t *testing.T) {
	d := Digits{Article: 10, File: 3, Annot: 5}
	const want = 440002039500000012
	if got := d.Compose(4400020395, 0, 12); got != want {
		t.Errorf("Compose = %d, want %d", got, want)
	}
}

func TestComposePanicsOnOverflow(t *testing.T) {
	d := Digits{Article: 10, File: 3, Annot: 5}
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range fileId")
		}
	}()
	d.Compose(1, 1000, 0)
}
