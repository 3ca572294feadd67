package voters

// Builtin 内置选民名册，未配置VOTERS_FILE时使用
func Builtin() *Directory {
	return NewDirectory([]Entry{
		{ID: "23BCS01", Name: "Aarav Kumar", Password: "kpr@2301"},
		{ID: "23BCS02", Name: "Diya Raman", Password: "kpr@2302"},
		{ID: "23BCS03", Name: "Karthik Selvam", Password: "kpr@2303"},
		{ID: "23BCS04", Name: "Meera Nair", Password: "kpr@2304"},
		{ID: "23BCS05", Name: "Rohan Iyer", Password: "kpr@2305"},
		{ID: "23ECE01", Name: "Nila Prakash", Password: "kpr@2311"},
		{ID: "23ECE02", Name: "Vikram Das", Password: "kpr@2312"},
		{ID: "23MEC01", Name: "Priya Shankar", Password: "kpr@2321"},
	})
}
