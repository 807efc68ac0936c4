package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func addressString(addr common.Address) string {
	return addr.Hex()
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
