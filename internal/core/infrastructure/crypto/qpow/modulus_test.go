package qpow

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDeriveModulusPair_WithSameHeader_ProducesIdenticalPair 验证模数推导的确定性
func TestDeriveModulusPair_WithSameHeader_ProducesIdenticalPair(t *testing.T) {
	// Arrange
	header := [32]byte{0x01, 0x02, 0x03, 0x04}

	// Act
	m1, n1 := DeriveModulusPair(header)
	m2, n2 := DeriveModulusPair(header)

	// Assert
	assert.Zero(t, m1.Cmp(m2), "同一头部摘要两次推导的m必须相同")
	assert.Zero(t, n1.Cmp(n2), "同一头部摘要两次推导的n必须相同")
}

// TestDeriveModulusPair_WithVariousHeaders_SatisfiesAllInvariants 验证模数不变量
func TestDeriveModulusPair_WithVariousHeaders_SatisfiesAllInvariants(t *testing.T) {
	// Arrange
	headers := [][32]byte{
		{},
		{0xff},
		{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
		{0xde, 0xad, 0xbe, 0xef, 0xde, 0xad, 0xbe, 0xef},
		{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x11, 0x22, 0x33},
	}

	for _, header := range headers {
		// Act
		m, n := DeriveModulusPair(header)

		// Assert
		require.Equal(t, uint(1), n.Bit(0), "n必须为奇数")
		require.Equal(t, 1, n.Cmp(m), "n必须严格大于m")

		gcd := new(big.Int).GCD(nil, nil, m, n)
		require.Zero(t, gcd.Cmp(big.NewInt(1)), "m与n必须互素")

		require.False(t, isPrime(n), "n必须为合数")
	}
}

// TestDeriveModulusPair_WithDifferentHeaders_ProducesDifferentPairs 验证不同输入产出不同模数
func TestDeriveModulusPair_WithDifferentHeaders_ProducesDifferentPairs(t *testing.T) {
	// Arrange
	h1 := [32]byte{0x01}
	h2 := [32]byte{0x02}

	// Act
	_, n1 := DeriveModulusPair(h1)
	_, n2 := DeriveModulusPair(h2)

	// Assert
	assert.NotZero(t, n1.Cmp(n2), "不同头部摘要推导出的n应当不同")
}

// TestIsPrime_WithKnownPrimes_ReturnsTrue 验证素性测试对已知素数的判定
func TestIsPrime_WithKnownPrimes_ReturnsTrue(t *testing.T) {
	// Arrange
	primes := []int64{2, 3, 5, 7, 13, 97, 7919, 104729}

	for _, p := range primes {
		// Act & Assert
		assert.True(t, isPrime(big.NewInt(p)), "应当判定 %d 为素数", p)
	}

	// 2^61 − 1（梅森素数）
	mersenne := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 61), big.NewInt(1))
	assert.True(t, isPrime(mersenne), "应当判定 2^61−1 为素数")
}

// TestIsPrime_WithCarmichaelNumbers_ReturnsFalse 验证对卡迈克尔数的判定
//
// 卡迈克尔数能骗过费马测试，但骗不过Miller–Rabin。
func TestIsPrime_WithCarmichaelNumbers_ReturnsFalse(t *testing.T) {
	// Arrange
	carmichaels := []int64{561, 1105, 2465, 6601}

	for _, c := range carmichaels {
		// Act & Assert
		assert.False(t, isPrime(big.NewInt(c)), "应当判定卡迈克尔数 %d 为合数", c)
	}
}

// TestIsPrime_WithComposites_ReturnsFalse 验证对普通合数的判定
func TestIsPrime_WithComposites_ReturnsFalse(t *testing.T) {
	// Arrange
	composites := []int64{0, 1, 4, 9, 15, 2047, 104730}

	for _, c := range composites {
		// Act & Assert
		assert.False(t, isPrime(big.NewInt(c)), "应当判定 %d 为合数", c)
	}
}

// TestWitnessForRound_WithAnyRound_StaysInRange 验证见证基落在合法区间
func TestWitnessForRound_WithAnyRound_StaysInRange(t *testing.T) {
	// Arrange
	n := big.NewInt(104729)
	lower := big.NewInt(2)
	upper := new(big.Int).Sub(n, bigTwo)

	for round := uint64(0); round < millerRabinRounds; round++ {
		// Act
		w := witnessForRound(n, round)

		// Assert
		require.GreaterOrEqual(t, w.Cmp(lower), 0, "见证基不能小于2")
		require.LessOrEqual(t, w.Cmp(upper), 0, "见证基不能大于n−2")
	}
}

// TestWitnessForRound_WithSameInputs_IsDeterministic 验证见证基派生的确定性
func TestWitnessForRound_WithSameInputs_IsDeterministic(t *testing.T) {
	// Arrange
	n := big.NewInt(7919)

	// Act
	w1 := witnessForRound(n, 5)
	w2 := witnessForRound(n, 5)

	// Assert
	assert.Zero(t, w1.Cmp(w2), "同一(n, 轮次)必须派生同一见证基")
}
