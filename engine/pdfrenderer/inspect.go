package pdfrenderer

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Info describes a document without rendering it
type Info struct {
	PageCount int        `json:"pageCount"`
	Pages     []Viewport `json:"pages"`
}

// letter is used when a page carries no MediaBox anywhere up its tree
var letter = Viewport{Width: 612, Height: 792}

// Inspect reads page count and page sizes with the pure-Go reader
func Inspect(data []byte) (info Info, err error) {
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unable to read PDF structure: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("unable to read PDF structure: %w", err)
	}

	info.PageCount = reader.NumPage()
	info.Pages = make([]Viewport, 0, info.PageCount)
	for i := 1; i <= info.PageCount; i++ {
		info.Pages = append(info.Pages, mediaBox(reader.Page(i).V))
	}
	return info, nil
}

// mediaBox resolves the page's MediaBox, following Parent for inherited values
func mediaBox(v pdf.Value) Viewport {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			return Viewport{
				Width:  box.Index(2).Float64() - box.Index(0).Float64(),
				Height: box.Index(3).Float64() - box.Index(1).Float64(),
			}
		}
		v = v.Key("Parent")
	}
	return letter
}
