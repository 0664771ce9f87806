// Package hdmx HDMI 矩阵 RS232 协议编解码
// 帧格式：A5 5B(2) + code(2) + data(8) + checksum(1)，定长 13 字节
package hdmx

import "fmt"

const (
	HeaderLen = 2
	CodeLen   = 2
	DataLen   = 8
	// FrameLen 单帧总长度，同时充当帧定界（协议无结束符）
	FrameLen = HeaderLen + CodeLen + DataLen + 1

	dataOffset  = HeaderLen + CodeLen
	checksumPos = FrameLen - 1
)

var header = [HeaderLen]byte{0xA5, 0x5B}

// Code 两字节命令码
type Code [CodeLen]byte

func (c Code) String() string { return fmt.Sprintf("%02X%02X", c[0], c[1]) }

// 命令码表
var (
	CodeQueryCable    = Code{0x01, 0x04}
	CodeQueryHPD      = Code{0x01, 0x05}
	CodeQueryBeep     = Code{0x01, 0x0B}
	CodeQueryPort     = Code{0x02, 0x01}
	CodeChangePort    = Code{0x02, 0x03}
	CodeSetEDIDToAll  = Code{0x03, 0x01}
	CodeSetEDID       = Code{0x03, 0x02}
	CodeCopyEDIDToAll = Code{0x03, 0x03}
	CodeCopyEDID      = Code{0x03, 0x04}
	CodeSetBeep       = Code{0x06, 0x01}
	CodeSetPower      = Code{0x06, 0x02}
)

// 开关量取值（蜂鸣器/电源）
const (
	SwitchOn  byte = 0x0F
	SwitchOff byte = 0xF0
)

func switchValue(on bool) byte {
	if on {
		return SwitchOn
	}
	return SwitchOff
}

// Frame 解码后的协议帧
// 数据区约定：Data[0]=参数1，Data[2]=参数2/应答值，其余保留为 0
type Frame struct {
	Code     Code
	Data     [DataLen]byte
	Checksum byte
	Raw      []byte
}

// Arg 返回参数1（查询应答中为被查询端口的回显）
func (f *Frame) Arg() byte { return f.Data[0] }

// Value 返回参数2（查询应答中为结果值）
func (f *Frame) Value() byte { return f.Data[2] }

// Hex 原始帧的十六进制表示
func (f *Frame) Hex() string { return HexString(f.Raw) }

// HexString 以空格分隔的大写十六进制，用于日志与错误诊断
func HexString(b []byte) string {
	return fmt.Sprintf("% X", b)
}
