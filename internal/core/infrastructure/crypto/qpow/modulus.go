// Package qpow 提供QPC谜题（抗内存/抗ASIC的模幂谜题）的核心算法
//
// 🔧 **模数推导组件 (Modulus Derivation Component)**
//
// 本文件实现按头部摘要确定性推导模数对(m, n)的算法，专注于：
// - 双哈希推导：m取自SHA3-256，n候选取自SHA3-512
// - 不变量筛选：n必须为奇数、大于m、与m互素、且为合数
// - 确定性素性测试：固定32轮Miller–Rabin，见证基由哈希派生
//
// 🎯 **确定性保证**：
// 同一头部摘要在任何机器、任何时刻推导出比特级一致的(m, n)。
// 素性测试的见证基不使用随机数，而是对 n ∥ 递增计数器 做哈希派生，
// 确保独立实现之间可复现。
package qpow

import (
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// millerRabinRounds 素性测试的固定轮数
const millerRabinRounds = 32

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
)

// DeriveModulusPair 从头部摘要确定性推导模数对(m, n)
//
// 推导流程：
//  1. m = SHA3-256(header)，256位无符号整数
//  2. n候选 = SHA3-512(header)，512位无符号整数
//  3. 当 n为偶数、n ≤ m、gcd(m,n) ≠ 1 或 n为素数 时，
//     将上一轮输出回灌：n = SHA3-512(n的64字节大端表示)
//
// 结果满足不变量：n为奇数、n > m、gcd(m,n) = 1、n为合数。
// 模数对按需重算，从不持久化。
func DeriveModulusPair(header [32]byte) (*big.Int, *big.Int) {
	mh := sha3.Sum256(header[:])
	m := new(big.Int).SetBytes(mh[:])

	nh := sha3.Sum512(header[:])
	n := new(big.Int).SetBytes(nh[:])

	for !modulusAcceptable(m, n) {
		var buf [64]byte
		n.FillBytes(buf[:])
		nh = sha3.Sum512(buf[:])
		n = new(big.Int).SetBytes(nh[:])
	}

	return m, n
}

// modulusAcceptable 检查n候选是否满足全部模数不变量
func modulusAcceptable(m, n *big.Int) bool {
	if n.Bit(0) == 0 {
		return false
	}
	if n.Cmp(m) <= 0 {
		return false
	}
	if new(big.Int).GCD(nil, nil, m, n).Cmp(bigOne) != 0 {
		return false
	}
	return !isPrime(n)
}

// isPrime 固定32轮Miller–Rabin素性测试
//
// 与常规实现不同，见证基不是随机的：第i轮的见证基由
// SHA3-512(n的64字节大端表示 ∥ i的8字节大端表示) 映射到 [2, n−2]
// 得到。这保证了模数推导在独立实现与不同机器之间比特级可复现。
func isPrime(n *big.Int) bool {
	if n.Cmp(bigTwo) < 0 {
		return false
	}
	if n.Cmp(bigTwo) == 0 || n.Cmp(big.NewInt(3)) == 0 {
		return true
	}
	if n.Bit(0) == 0 {
		return false
	}

	// n − 1 = d · 2^s，d为奇数
	nMinusOne := new(big.Int).Sub(n, bigOne)
	d := new(big.Int).Set(nMinusOne)
	s := 0
	for d.Bit(0) == 0 {
		d.Rsh(d, 1)
		s++
	}

	x := new(big.Int)
	for i := uint64(0); i < millerRabinRounds; i++ {
		w := witnessForRound(n, i)

		x = modExp(w, d, n)
		if x.Cmp(bigOne) == 0 || x.Cmp(nMinusOne) == 0 {
			continue
		}

		composite := true
		for j := 0; j < s-1; j++ {
			x.Mul(x, x)
			x.Mod(x, n)
			if x.Cmp(nMinusOne) == 0 {
				composite = false
				break
			}
		}
		if composite {
			return false
		}
	}

	return true
}

// witnessForRound 派生第i轮的确定性见证基，结果落在 [2, n−2]
func witnessForRound(n *big.Int, round uint64) *big.Int {
	var buf [72]byte
	n.FillBytes(buf[:64])
	binary.BigEndian.PutUint64(buf[64:], round)

	h := sha3.Sum512(buf[:])
	w := new(big.Int).SetBytes(h[:])

	// 映射到 [2, n−2]：w mod (n−3) + 2
	span := new(big.Int).Sub(n, big.NewInt(3))
	w.Mod(w, span)
	w.Add(w, bigTwo)
	return w
}
