// Package utils 提供QPC系统的通用工具函数
package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// U512HexDigits 512位无符号整数的十六进制字符数（128位十六进制）
const U512HexDigits = 128

// maxU512 512位无符号整数上界（2^512 − 1）
var maxU512 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 512), big.NewInt(1))

// MaxU512 返回512位无符号整数上界的副本
func MaxU512() *big.Int {
	return new(big.Int).Set(maxU512)
}

// EncodeU512Hex 将大整数编码为128位零填充十六进制字符串（无0x前缀）
func EncodeU512Hex(v *big.Int) string {
	return fmt.Sprintf("%0128x", v)
}

// DecodeU512Hex 从128位十六进制字符串解析512位无符号整数
func DecodeU512Hex(s string) (*big.Int, error) {
	if len(s) != U512HexDigits {
		return nil, fmt.Errorf("U512十六进制长度必须为%d，实际长度: %d", U512HexDigits, len(s))
	}
	v, ok := new(big.Int).SetString(strings.ToLower(s), 16)
	if !ok {
		return nil, fmt.Errorf("非法的U512十六进制字符串: %q", s)
	}
	return v, nil
}

// DecodeDecimal 从十进制字符串解析非负整数
func DecodeDecimal(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("非法的十进制字符串: %q", s)
	}
	return v, nil
}
