// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import "fmt"

// AppendEscaped appends data to dst in control-mode output encoding:
// bytes below 0x20 and backslash become a backslash and three octal
// digits; everything else is copied unchanged.
func AppendEscaped(dst, data []byte) []byte {
	for _, b := range data {
		if b < ' ' || b == '\\' {
			dst = append(dst, '\\', '0'+(b>>6), '0'+((b>>3)&7), '0'+(b&7))
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// Unescape reverses AppendEscaped. A backslash not followed by three
// octal digits is an error.
func Unescape(text string) ([]byte, error) {
	result := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		if text[i] != '\\' {
			result = append(result, text[i])
			continue
		}
		if i+4 > len(text) {
			return nil, fmt.Errorf("truncated escape at byte %d", i)
		}
		var value int
		for _, digit := range []byte(text[i+1 : i+4]) {
			if digit < '0' || digit > '7' {
				return nil, fmt.Errorf("bad octal escape %q at byte %d", text[i:i+4], i)
			}
			value = value<<3 | int(digit-'0')
		}
		if value > 0xff {
			return nil, fmt.Errorf("octal escape %q out of range at byte %d", text[i:i+4], i)
		}
		result = append(result, byte(value))
		i += 3
	}
	return result, nil
}
