package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// CatalogJSON builds repository metadata documents for tests.
type CatalogJSON struct {
	Time     int64                  `json:"time"`
	Packages map[string]PackageDoc `json:"packages"`
}

// PackageDoc is one package entry of a metadata document. Field names
// follow the wire format.
type PackageDoc map[string]interface{}

// VariantDoc is one variant entry.
type VariantDoc map[string]interface{}

// NewCatalogJSON returns a document with the given timestamp.
func NewCatalogJSON(ts int64) *CatalogJSON {
	return &CatalogJSON{Time: ts, Packages: map[string]PackageDoc{}}
}

// Package adds a package signed by a dummy certificate and returns it.
func (c *CatalogJSON) Package(name string) PackageDoc {
	p := PackageDoc{
		"signatures": []string{hex.EncodeToString(make([]byte, 32))},
		"variants":   map[string]VariantDoc{},
	}
	c.Packages[name] = p
	return p
}

// Variant adds a variant with a single base apk whose payload is content.
func (p PackageDoc) Variant(versionCode int64, content []byte) VariantDoc {
	sum := sha256.Sum256(content)
	v := VariantDoc{
		"label":      "Label " + strconv.FormatInt(versionCode, 10),
		"apks":       []string{"base.apk"},
		"apkHashes":  []string{hex.EncodeToString(sum[:])},
		"apkSizes":   []int64{int64(len(content))},
		"apkGzSizes": []int64{int64(len(content))},
	}
	p["variants"].(map[string]VariantDoc)[strconv.FormatInt(versionCode, 10)] = v
	return v
}

// Apks replaces the apk arrays of v.
func (v VariantDoc) Apks(names []string, contents [][]byte, gzSizes []int64) VariantDoc {
	hashes := make([]string, len(contents))
	sizes := make([]int64, len(contents))
	for i, c := range contents {
		sum := sha256.Sum256(c)
		hashes[i] = hex.EncodeToString(sum[:])
		sizes[i] = int64(len(c))
	}
	v["apks"] = names
	v["apkHashes"] = hashes
	v["apkSizes"] = sizes
	v["apkGzSizes"] = gzSizes
	return v
}

// Bytes encodes the document.
func (c *CatalogJSON) Bytes() []byte {
	b, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	return b
}
