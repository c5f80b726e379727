// Package id generates paste identifiers.
package id

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
)

const (
	defaultLength = 12
	minLength     = 6
	maxLength     = 64
)

// URLSafe avoids '-' and '_' so ids survive double-click selection and line
// wrapping in chat clients.
const URLSafe = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Generator produces unique, URL-safe identifiers.
type Generator struct {
	length   int
	alphabet string
}

// New returns a Generator with the provided length. If length <= 0, a sane
// default is used; other values are clamped to [6, 64].
func New(length int) *Generator {
	switch {
	case length <= 0:
		length = defaultLength
	case length < minLength:
		length = minLength
	case length > maxLength:
		length = maxLength
	}
	return &Generator{length: length, alphabet: URLSafe}
}

// Length reports the id length.
func (g *Generator) Length() int { return g.length }

// Generate returns a new identifier.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := gonanoid.Generate(g.alphabet, g.length)
	if err != nil {
		return "", errors.Wrap(err, "generate id")
	}
	return v, nil
}
