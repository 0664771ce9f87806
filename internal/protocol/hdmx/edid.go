package hdmx

import (
	"fmt"
	"strconv"
)

// EDID 预置 EDID 编号
type EDID int

const (
	EDIDMin = 1
	EDIDMax = 15
)

// 设备内置 EDID 表
const (
	EDID1080i20      EDID = 1
	EDID1080i51      EDID = 2
	EDID1080i71      EDID = 3
	EDID1080p20      EDID = 4
	EDID1080p51      EDID = 5
	EDID1080p71      EDID = 6
	EDID3D20         EDID = 7
	EDID3D51         EDID = 8
	EDID3D71         EDID = 9
	EDID4K2K20       EDID = 10
	EDID4K2K51       EDID = 11
	EDID4K2K71       EDID = 12
	EDIDDVI1024x768  EDID = 13
	EDIDDVI1920x1080 EDID = 14
	EDIDDVI1920x1200 EDID = 15
)

var edidNames = map[EDID]string{
	EDID1080i20:      "1080i_2.0",
	EDID1080i51:      "1080i_5.1",
	EDID1080i71:      "1080i_7.1",
	EDID1080p20:      "1080p_2.0",
	EDID1080p51:      "1080p_5.1",
	EDID1080p71:      "1080p_7.1",
	EDID3D20:         "3d_2.0",
	EDID3D51:         "3d_5.1",
	EDID3D71:         "3d_7.1",
	EDID4K2K20:       "4k2k_2.0",
	EDID4K2K51:       "4k2k_5.1",
	EDID4K2K71:       "4k2k_7.1",
	EDIDDVI1024x768:  "dvi_1024x768",
	EDIDDVI1920x1080: "dvi_1920x1080",
	EDIDDVI1920x1200: "dvi_1920x1200",
}

// Valid 是否为设备支持的编号
func (e EDID) Valid() bool { return e >= EDIDMin && e <= EDIDMax }

func (e EDID) String() string {
	if n, ok := edidNames[e]; ok {
		return n
	}
	return fmt.Sprintf("edid(%d)", int(e))
}

// ParseEDID 按名称或编号解析
func ParseEDID(s string) (EDID, error) {
	for k, v := range edidNames {
		if v == s {
			return k, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		e := EDID(n)
		if !e.Valid() {
			return 0, &InvalidEDIDError{Value: n}
		}
		return e, nil
	}
	return 0, fmt.Errorf("%w: unknown edid %q", ErrInvalidArgument, s)
}
