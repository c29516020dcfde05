package utils

import (
	"strconv"
)

// StringToInt converts string to int, returns 0 if error
func StringToInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

// ParseUintPtr 解析可选的 ID 参数，空串或非法值返回 nil
func ParseUintPtr(s string) *uint {
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return nil
	}
	id := uint(n)
	return &id
}

// Pagination 规范化后的分页参数
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination 解析 page/limit，page 从 1 开始，limit 限制在 [1, max]
func ParsePagination(pageStr, limitStr string, def, max int) Pagination {
	page := StringToInt(pageStr)
	if page < 1 {
		page = 1
	}
	limit := StringToInt(limitStr)
	if limit < 1 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return Pagination{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// TotalPages 计算总页数，至少为 1
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 1
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages == 0 {
		pages = 1
	}
	return pages
}
