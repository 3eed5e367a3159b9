package domain

import "fmt"

// Pixel addresses one pixel of the matrix.
type Pixel struct {
	Col int `json:"col" yaml:"col"`
	Row int `json:"row" yaml:"row"`
}

// String formats the pixel as "col,row".
func (p Pixel) String() string {
	return fmt.Sprintf("%d,%d", p.Col, p.Row)
}
