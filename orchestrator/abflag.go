package orchestrator

// ABFlag 由 ud 计算实验分组：从 1 开始累加，数字字符加数值，其他字符加码点，偶数为 a、奇数为 b。
// ud 为空时为 a。
func ABFlag(ud string) string {
	if ud == "" {
		return "a"
	}
	s := 1
	for _, c := range ud {
		if c >= '0' && c <= '9' {
			s += int(c - '0')
		} else {
			s += int(c)
		}
	}
	if s%2 == 0 {
		return "a"
	}
	return "b"
}
