package pdf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// CacheEntry 一条缓存的译文
type CacheEntry struct {
	Hash        string    `json:"hash"`
	Original    string    `json:"original"`
	TargetLang  string    `json:"target_lang"`
	Translation string    `json:"translation"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheFile 缓存文件格式
type CacheFile struct {
	Version string       `json:"version"`
	Entries []CacheEntry `json:"entries"`
}

// TranslationCache 负责缓存翻译结果
type TranslationCache struct {
	cachePath string
	cache     map[string]CacheEntry // hash -> CacheEntry
	mu        sync.RWMutex
}

// NewTranslationCache 创建新的翻译缓存实例
func NewTranslationCache(cachePath string) *TranslationCache {
	return &TranslationCache{
		cachePath: cachePath,
		cache:     make(map[string]CacheEntry),
	}
}

// ComputeHash 计算 (语言对, 文本) 的 SHA256
func (c *TranslationCache) ComputeHash(sourceLang, targetLang, text string) string {
	hash := sha256.Sum256([]byte(NormalizeLang(sourceLang) + ">" + NormalizeLang(targetLang) + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// Get 获取缓存的翻译
func (c *TranslationCache) Get(sourceLang, targetLang, text string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[c.ComputeHash(sourceLang, targetLang, text)]
	if !ok {
		return "", false
	}
	return entry.Translation, true
}

// Set 设置翻译缓存
func (c *TranslationCache) Set(sourceLang, targetLang, text, translation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := c.ComputeHash(sourceLang, targetLang, text)
	c.cache[hash] = CacheEntry{
		Hash:        hash,
		Original:    text,
		TargetLang:  NormalizeLang(targetLang),
		Translation: translation,
		CreatedAt:   time.Now().UTC(),
	}
}

// Load 从文件加载缓存，文件不存在时为空缓存
func (c *TranslationCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachePath == "" {
		return nil
	}
	data, err := os.ReadFile(c.cachePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return NewPDFError(ErrCacheFailed, "failed to read cache file", err)
	}
	var file CacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return NewPDFError(ErrCacheFailed, "failed to parse cache file", err)
	}
	c.cache = make(map[string]CacheEntry, len(file.Entries))
	for _, entry := range file.Entries {
		c.cache[entry.Hash] = entry
	}
	return nil
}

// Save 保存缓存到文件，条目按哈希排序
func (c *TranslationCache) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cachePath == "" {
		return nil
	}
	entries := make([]CacheEntry, 0, len(c.cache))
	for _, entry := range c.cache {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Hash < entries[j].Hash })

	data, err := json.MarshalIndent(CacheFile{Version: "2.0", Entries: entries}, "", "  ")
	if err != nil {
		return NewPDFError(ErrCacheFailed, "failed to marshal cache", err)
	}
	if dir := filepath.Dir(c.cachePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return NewPDFError(ErrCacheFailed, "failed to create cache directory", err)
		}
	}
	if err := os.WriteFile(c.cachePath, data, 0644); err != nil {
		return NewPDFError(ErrCacheFailed, "failed to write cache file", err)
	}
	return nil
}

// Size 返回缓存中的条目数量
func (c *TranslationCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear 清空缓存
func (c *TranslationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]CacheEntry)
}

// CachedOracle answers from the cache and forwards only the missing texts
type CachedOracle struct {
	next  Oracle
	cache *TranslationCache
}

// NewCachedOracle wraps next with cache
func NewCachedOracle(next Oracle, cache *TranslationCache) *CachedOracle {
	return &CachedOracle{next: next, cache: cache}
}

// Cache returns the underlying cache
func (o *CachedOracle) Cache() *TranslationCache {
	return o.cache
}

// Translate implements Oracle
func (o *CachedOracle) Translate(ctx context.Context, req OracleRequest) ([]string, error) {
	out, _, err := o.TranslateCached(ctx, req)
	return out, err
}

// TranslateCached also reports which results came from the cache
func (o *CachedOracle) TranslateCached(ctx context.Context, req OracleRequest) ([]string, []bool, error) {
	out := make([]string, len(req.Texts))
	hit := make([]bool, len(req.Texts))
	var missing []string
	var where []int
	for i, text := range req.Texts {
		if tr, ok := o.cache.Get(req.SourceLang, req.TargetLang, text); ok {
			out[i], hit[i] = tr, true
			continue
		}
		missing = append(missing, text)
		where = append(where, i)
	}
	if len(missing) == 0 {
		return out, hit, nil
	}

	sub := req
	sub.Texts = missing
	got, err := o.next.Translate(ctx, sub)
	if err != nil {
		return nil, nil, err
	}
	if len(got) != len(missing) {
		return nil, nil, ErrOracleMismatch
	}
	for k, i := range where {
		out[i] = got[k]
		o.cache.Set(req.SourceLang, req.TargetLang, req.Texts[i], got[k])
	}
	return out, hit, nil
}
