package retrieval

import (
	"hash/fnv"
	"math/bits"

	"github.com/BaSui01/retrievalflow/lexical"
)

// Fingerprint 候选文本的 64 位语义指纹，用于组装阶段的近重复剔除。
// 有嵌入时按嵌入分量符号分桶；否则对分词结果做 SimHash。
// 两种来源产出的指纹不混合比较：同一次查询内所有候选走同一条路径。
type Fingerprint uint64

// fingerprintFor 为候选计算指纹。
func fingerprintFor(c *Candidate) Fingerprint {
	if len(c.Embedding) >= 64 {
		return embeddingFingerprint(c.Embedding)
	}
	return simhash(lexical.Tokenize(c.Text))
}

// embeddingFingerprint 取前 64 个分量的符号位。
// 近似向量的符号模式高度一致，海明距离小。
func embeddingFingerprint(vec []float64) Fingerprint {
	var fp uint64
	for i := 0; i < 64; i++ {
		if vec[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return Fingerprint(fp)
}

// simhash 对词集做经典 SimHash：每个词哈希成 64 位，
// 按位投票后取多数符号。
func simhash(terms []string) Fingerprint {
	if len(terms) == 0 {
		return 0
	}
	var votes [64]int
	for _, term := range terms {
		h := fnv.New64a()
		h.Write([]byte(term))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}
	var fp uint64
	for i, v := range votes {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return Fingerprint(fp)
}

// NearDuplicate 判断两个指纹的海明距离是否不超过 radius。
func (f Fingerprint) NearDuplicate(other Fingerprint, radius int) bool {
	return bits.OnesCount64(uint64(f^other)) <= radius
}
