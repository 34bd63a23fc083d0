package goid

import "runtime"

const stackPrefix = "goroutine "

// GetGID 从栈头 ("goroutine 123 [running]:") 解析当前 goroutine id，解析失败返回 0
// 仅用于日志关联
func GetGID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	if len(b) <= len(stackPrefix) || string(b[:len(stackPrefix)]) != stackPrefix {
		return 0
	}
	var id uint64
	for _, c := range b[len(stackPrefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
