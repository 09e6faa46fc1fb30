package utils

// Find 按ID查找数据
// 参数：dataMap-ID到数据的映射，data-全部数据，ids-待查找的ID
// 返回：ids为空时返回data；否则按ids顺序返回找到的数据（重复ID只返回一次），以及不存在的ID
func Find[T any](dataMap map[int32]T, data []T, ids []int32) (found []T, missing []int32) {
	if len(ids) == 0 {
		return data, nil
	}
	seen := make(map[int32]struct{}, len(ids))
	found = make([]T, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if d, ok := dataMap[id]; ok {
			found = append(found, d)
		} else {
			missing = append(missing, id)
		}
	}
	return
}
