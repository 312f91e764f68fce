package model

// Event type labels. The set is closed on the bridge side, but labels coming
// from free-form sources may fall outside it.
const (
	TypeGeneral    = "Chung"
	TypeClass      = "Lịch học"
	TypeExam       = "Lịch thi"
	TypeAssignment = "Bài tập"
	TypeMeeting    = "Họp lớp"
	TypePersonal   = "Cá nhân"
	TypeOther      = "Khác"
)
