package hdmx

import "errors"

// ErrChecksumMismatch 校验和不匹配
var ErrChecksumMismatch = errors.New("checksum mismatch")

const checksumBase = 0x100

// Checksum 计算帧校验字节（从帧头到数据区末尾）
// 与设备固件算法保持一致：0x100 - sum；若为负，反复加 0xFF 直至非负后再加 1。
// 注意：code+data 累加超过 0xFF 时结果与标准补码差 1，不可替换。
func Checksum(b []byte) byte {
	c := checksumBase
	for _, v := range b {
		c -= int(v)
	}
	if c < 0 {
		for c < 0 {
			c += 0xFF
		}
		c++
	}
	return byte(c)
}

// VerifyChecksum 校验完整帧（最后一个字节为校验和）
func VerifyChecksum(frame []byte) error {
	if len(frame) < 1 {
		return errors.New("data too short for checksum verification")
	}
	pos := len(frame) - 1
	if frame[pos] != Checksum(frame[:pos]) {
		return ErrChecksumMismatch
	}
	return nil
}
