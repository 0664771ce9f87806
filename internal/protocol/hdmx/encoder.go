package hdmx

import "errors"

// BuildFrame 构造完整帧：header + code + data + checksum
// d0 写入数据区第 1 字节，d2 写入第 3 字节，其余补 0
func BuildFrame(code Code, d0, d2 byte) []byte {
	buf := make([]byte, 0, FrameLen)
	buf = append(buf, header[:]...)
	buf = append(buf, code[:]...)

	var data [DataLen]byte
	data[0] = d0
	data[2] = d2
	buf = append(buf, data[:]...)

	return append(buf, Checksum(buf))
}

// Encode 本地校验参数后编码命令
// 校验失败时返回 *InvalidPortError / *InvalidEDIDError，不产生任何字节
func Encode(cmd Command, maxPorts int) ([]byte, error) {
	if cmd == nil {
		return nil, errors.New("nil command")
	}
	if err := cmd.Validate(maxPorts); err != nil {
		return nil, err
	}
	d0, d2 := cmd.args()
	return BuildFrame(cmd.Code(), d0, d2), nil
}

// BuildResponse 构造查询应答帧（设备侧/模拟器使用）
// d0 回显查询参数，d2 为查询结果
func BuildResponse(cmd Command, value byte) []byte {
	d0, _ := cmd.args()
	return BuildFrame(cmd.Code(), d0, value)
}
