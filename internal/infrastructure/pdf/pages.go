package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageCounter reads page counts from PDF bytes with pdfcpu.
type PageCounter struct {
	conf *model.Configuration
}

func NewPageCounter() *PageCounter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PageCounter{conf: conf}
}

func (c *PageCounter) CountPages(data []byte) (count int, err error) {
	if len(data) == 0 {
		return 0, errors.New("empty pdf body")
	}
	defer func() {
		if rec := recover(); rec != nil {
			count, err = 0, fmt.Errorf("count pdf pages: %v", rec)
		}
	}()
	count, err = api.PageCount(bytes.NewReader(data), c.conf)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return count, nil
}
